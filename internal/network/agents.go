package network

// agents.go — The agent graph inside one network, as reported by the
// server's connectivity and function endpoints.

import "slices"

// Agent is one node of a network's agent graph. Tools names the agents or
// coded tools Origin can call.
type Agent struct {
	Origin    string   `json:"origin"`
	Tools     []string `json:"tools,omitempty"`
	DisplayAs string   `json:"display_as,omitempty"`
}

// Inspection is what a server reports about a network beyond its listing
// entry: the function its front agent exposes and its agent graph.
type Inspection struct {
	Function string  `json:"function,omitempty"`
	Agents   []Agent `json:"agents,omitempty"`
}

// Entrypoints returns the origins no other agent calls, in input order.
// When every agent is called by another, the first agent is returned.
func Entrypoints(agents []Agent) []string {
	called := make(map[string]bool)
	for _, a := range agents {
		for _, t := range a.Tools {
			if t != a.Origin {
				called[t] = true
			}
		}
	}
	var out []string
	for _, a := range agents {
		if !called[a.Origin] && !slices.Contains(out, a.Origin) {
			out = append(out, a.Origin)
		}
	}
	if len(out) == 0 && len(agents) > 0 {
		out = append(out, agents[0].Origin)
	}
	return out
}
