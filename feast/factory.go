package feast

import (
	"fmt"
	"strconv"
	"strings"
)

// NewClient 根据端点创建客户端。
//
// 端点格式："localhost:6566" 或 "grpc://localhost:6566"，未指定端口时使用 6566。
//
// 示例：
//
//	client, err := feast.NewClient("feast-serving:6566", "routine", feast.WithTimeout(time.Second))
func NewClient(endpoint, project string, opts ...ClientOption) (Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("feast endpoint is required")
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("feast endpoint %q: only gRPC serving is supported", endpoint)
	}
	host, port := parseEndpoint(endpoint)
	return NewGrpcClient(host, port, project, opts...)
}

// parseEndpoint 解析端点地址，返回 host 和 port
func parseEndpoint(endpoint string) (string, int) {
	endpoint = strings.TrimPrefix(endpoint, "grpc://")

	host, portStr, ok := strings.Cut(endpoint, ":")
	if ok {
		if port, err := strconv.Atoi(portStr); err == nil {
			return host, port
		}
	}
	return endpoint, 0
}
