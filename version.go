package featurehub

// sdkName and sdkVersion are sent to the edge service on every request so
// that the server can log which SDKs are connected to it.
const (
	sdkName    = "Go"
	sdkVersion = "1.0.0"
)
