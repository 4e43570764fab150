package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"

	"github.com/rushteam/inferkit/core"
)

// CacheObserver 接收缓存命中情况（用于指标）
type CacheObserver func(hit bool)

// CachedService 在 MLService 之上加一层读穿缓存。
//
// 模型是确定性的只读制品，相同输入必然得到相同输出，因此缓存不改变语义。
// 缓存读写失败只会退化为直连，不会让请求失败。
type CachedService struct {
	inner     core.MLService
	store     core.Store
	namespace string
	ttl       int
	observe   CacheObserver
}

// NewCachedService 创建缓存包装；namespace 通常为 "用例/模型"。
func NewCachedService(inner core.MLService, store core.Store, namespace string, ttlSeconds int, observe CacheObserver) *CachedService {
	return &CachedService{
		inner:     inner,
		store:     store,
		namespace: namespace,
		ttl:       ttlSeconds,
		observe:   observe,
	}
}

// CacheKey 计算请求的缓存 key：namespace + 输入的 SHA-256。
func CacheKey(namespace string, req *core.MLPredictRequest) string {
	h := sha256.New()
	var buf [8]byte
	writeFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	for _, row := range req.Instances {
		writeFloat(float64(len(row)))
		for _, v := range row {
			writeFloat(v)
		}
	}
	if req.Tensor != nil {
		for _, d := range req.Tensor.Shape {
			writeFloat(float64(d))
		}
		for _, v := range req.Tensor.Data {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			h.Write(buf[:4])
		}
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedService) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if len(req.Features) > 0 && len(req.Instances) == 0 && req.Tensor == nil {
		return c.inner.Predict(ctx, req)
	}
	key := CacheKey(c.namespace, req)
	if data, err := c.store.Get(ctx, key); err == nil {
		var outputs [][]float64
		if json.Unmarshal(data, &outputs) == nil {
			c.record(true)
			return core.NewMLPredictResponse(outputs, ""), nil
		}
	}
	c.record(false)

	resp, err := c.inner.Predict(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(resp.Outputs); err == nil {
		_ = c.store.Set(ctx, key, data, c.ttl)
	}
	return resp, nil
}

func (c *CachedService) record(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}

func (c *CachedService) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}

// Close 只关闭被包装的服务，Store 由创建方负责关闭（可能被多个用例共享）。
func (c *CachedService) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}

// Unwrap 返回被包装的服务
func (c *CachedService) Unwrap() core.MLService {
	return c.inner
}

var _ core.MLService = (*CachedService)(nil)
