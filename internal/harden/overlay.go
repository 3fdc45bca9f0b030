package harden

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// overlayStage offers the mesh overlay (Tailscale) as the safe remote-access
// path. Purely additive: it never touches firewall or SSH state.
func (h *Hardener) overlayStage(ctx context.Context) StageResult {
	result := StageResult{Stage: "overlay"}

	if h.runner.Available("tailscale") {
		res := h.runner.RunArgs(ctx, "tailscale", "status")
		output := strings.ToLower(res.Stdout + res.Stderr)
		if res.Ok() && !strings.Contains(output, "stopped") && !strings.Contains(output, "logged out") {
			result.Outcome = OutcomeSkipped
			result.Detail = "tailscale already installed and connected"
			return result
		}
		result.Outcome = OutcomeApplied
		result.Detail = "tailscale installed but not connected - run: tailscale up (authenticate in the browser it opens)"
		return result
	}

	if !h.confirm.Confirm("Tailscale is not installed. Install it so services can stay loopback-bound?") {
		result.Outcome = OutcomeDeclined
		result.Detail = "tailscale not installed; remote access still depends on exposed ports"
		return result
	}

	if err := installPackage(ctx, h.runner, "tailscale"); err != nil {
		// Most distros need Tailscale's own repo; point at the official
		// installer rather than failing silently.
		log.Printf("[WARN] Package install failed: %v", err)
		result.Outcome = OutcomeFailed
		result.Detail = fmt.Sprintf("package install failed (%v) - install manually: curl -fsSL https://tailscale.com/install.sh | sh", err)
		return result
	}

	result.Outcome = OutcomeApplied
	result.Detail = "tailscale installed - run: tailscale up to connect this host to your tailnet"
	return result
}
