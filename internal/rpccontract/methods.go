package rpccontract

const (
	ServiceName = "edgehub.v1.EdgeHub"
)

const (
	MethodGetHealth         = "/" + ServiceName + "/GetHealth"
	MethodGetStats          = "/" + ServiceName + "/GetStats"
	MethodProcessTask       = "/" + ServiceName + "/ProcessTask"
	MethodUpdatePolicies    = "/" + ServiceName + "/UpdatePolicies"
	MethodAddGlobalPolicy   = "/" + ServiceName + "/AddGlobalPolicy"
	MethodGetDeviceStatus   = "/" + ServiceName + "/GetDeviceStatus"
	MethodGetDeviceInsights = "/" + ServiceName + "/GetDeviceInsights"
	MethodListDevices       = "/" + ServiceName + "/ListDevices"
)

var WriteMethods = map[string]struct{}{
	MethodUpdatePolicies:  {},
	MethodAddGlobalPolicy: {},
}
