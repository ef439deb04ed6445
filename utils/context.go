package utils

type contextKey string

// Context keys shared by handlers and flows
const (
	RequestIDKey  contextKey = "request_id"
	TenantIDKey   contextKey = "tenant_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	TimeoutKey    contextKey = "timeout"
	CancelFuncKey contextKey = "cancel_func"
)
