package cnst

const (
	AppName = "liveadmin"

	// ServerYaml is the default configuration file of liveadmin-server
	ServerYaml = "server.yaml"
	// WatchYaml is the default configuration file of liveadmin-watch
	WatchYaml = "watch.yaml"
)

const (
	RedisClusterTypeSingle   = "single"
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
)

const (
	RelayTypeNone  = "none"
	RelayTypeRedis = "redis"
)

// CtxKeyIdentity is the gin context key holding the authenticated *auth.Identity
const CtxKeyIdentity = "identity"
