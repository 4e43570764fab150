// Package artifact 提供只读的制品存储：模型元数据、编码表、标签文件等在进程启动时一次性加载。
package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Store 制品存储接口。
// 支持从不同来源读取制品（本地目录、HTTP 接口、GCS 等），path 为相对于根的路径。
type Store interface {
	// Open 打开一个制品，调用方负责关闭
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Describe 返回制品的完整位置（用于健康检查与日志）
	Describe(path string) string

	// Close 释放底层连接
	Close() error
}

// Options 创建 Store 的选项
type Options struct {
	// HTTPTimeout HTTP 制品源的超时时间
	HTTPTimeout time.Duration

	// GCSCredentialsFile GCS 服务账号密钥路径（可选，为空时使用默认凭证）
	GCSCredentialsFile string
}

// New 根据根地址的 scheme 选择实现：
//   - "gs://bucket/prefix"  -> GCSStore
//   - "http(s)://host/base" -> HTTPStore
//   - 其他                  -> FileStore（本地目录）
func New(ctx context.Context, root string, opts Options) (Store, error) {
	switch {
	case strings.HasPrefix(root, "gs://"):
		bucket, prefix, err := parseGCSURI(root)
		if err != nil {
			return nil, err
		}
		var clientOpts []option.ClientOption
		if opts.GCSCredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(opts.GCSCredentialsFile))
		}
		client, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		return NewGCSStore(client, bucket, prefix), nil
	case strings.HasPrefix(root, "http://"), strings.HasPrefix(root, "https://"):
		return NewHTTPStore(root, opts.HTTPTimeout), nil
	default:
		return NewFileStore(root), nil
	}
}

// FileStore 本地目录制品存储
type FileStore struct {
	Root string
}

// NewFileStore 创建本地目录制品存储
func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

func (s *FileStore) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Root, filepath.FromSlash(p))
}

func (s *FileStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	return os.Open(s.resolve(p))
}

func (s *FileStore) Describe(p string) string { return s.resolve(p) }

func (s *FileStore) Close() error { return nil }

// HTTPStore HTTP 接口制品存储
//
// 用法：
//
//	store := artifact.NewHTTPStore("http://models.internal/v1.0.0", 5*time.Second)
//	rc, err := store.Open(ctx, "stress/meta.json")
type HTTPStore struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPStore 创建 HTTP 接口制品存储，timeout 为 0 时默认 10 秒
func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewHTTPStoreWithClient 使用自定义 HTTP 客户端创建制品存储
func NewHTTPStoreWithClient(baseURL string, client *http.Client) *HTTPStore {
	return &HTTPStore{BaseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPStore) Describe(p string) string {
	if u, err := url.Parse(p); err == nil && u.IsAbs() {
		return p
	}
	return s.BaseURL + "/" + strings.TrimLeft(p, "/")
}

func (s *HTTPStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Describe(p), nil)
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP 请求失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP 请求失败: status=%d, body=%s", resp.StatusCode, string(body))
	}
	return resp.Body, nil
}

func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// GCSStore Google Cloud Storage 制品存储
type GCSStore struct {
	client *storage.Client
	Bucket string
	Prefix string
}

// NewGCSStore 使用已有的 storage 客户端创建制品存储
func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{client: client, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}
}

func (s *GCSStore) object(p string) string {
	if s.Prefix == "" {
		return strings.TrimLeft(p, "/")
	}
	return path.Join(s.Prefix, p)
}

func (s *GCSStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.Bucket).Object(s.object(p)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", s.Bucket, s.object(p), err)
	}
	return r, nil
}

func (s *GCSStore) Describe(p string) string {
	return fmt.Sprintf("gs://%s/%s", s.Bucket, s.object(p))
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func parseGCSURI(uri string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(uri, "gs://")
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid gcs uri %q: bucket is empty", uri)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*HTTPStore)(nil)
	_ Store = (*GCSStore)(nil)
)
