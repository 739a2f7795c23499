package engine

import "github.com/ggoodman/mcp-stdio-go/mcp"

// route is the closed set of methods the engine understands. Every method
// string maps to exactly one route; anything else is routeUnknown.
type route int

const (
	routeUnknown route = iota
	routeInitialize
	routeInitialized
	routeCancelled
	routePing
	routeToolsList
	routeToolsCall
	routeResourcesList
	routeResourcesRead
	routeResourcesTemplatesList
	routePromptsList
	routePromptsGet
)

var routesByMethod = map[mcp.Method]route{
	mcp.InitializeMethod:              routeInitialize,
	mcp.InitializedNotificationMethod: routeInitialized,
	mcp.CancelledNotificationMethod:   routeCancelled,
	mcp.PingMethod:                    routePing,
	mcp.ToolsListMethod:               routeToolsList,
	mcp.ToolsCallMethod:               routeToolsCall,
	mcp.ResourcesListMethod:           routeResourcesList,
	mcp.ResourcesReadMethod:           routeResourcesRead,
	mcp.ResourcesTemplatesListMethod:  routeResourcesTemplatesList,
	mcp.PromptsListMethod:             routePromptsList,
	mcp.PromptsGetMethod:              routePromptsGet,
}

func parseRoute(method string) route {
	if rt, ok := routesByMethod[mcp.Method(method)]; ok {
		return rt
	}
	return routeUnknown
}

// String returns the method name, or "unknown". It doubles as the metrics
// label so arbitrary client input cannot grow label cardinality.
func (r route) String() string {
	for m, rt := range routesByMethod {
		if rt == r {
			return string(m)
		}
	}
	return "unknown"
}
