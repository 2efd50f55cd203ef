package respcache

import "fmt"

func AgentProbesKey(agent string) string {
	return fmt.Sprintf("agentprobes:%s", agent)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
