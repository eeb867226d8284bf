package release

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// resolveToken picks a bearer token using the documented priority
// (explicit flag, then GITHUB_TOKEN), falling back to the GitHub CLI's
// cached credentials when both are absent. The fallback never masks
// either documented source — it only runs when explicit is empty.
func resolveToken(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return tryGHAuthToken()
}

// tryGHAuthToken runs `gh auth token` as a subprocess and returns its
// trimmed stdout. Any failure — gh not installed, not logged in, a
// slow shell — is swallowed and yields an empty token, which the
// caller treats as "proceed unauthenticated".
func tryGHAuthToken() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gh", "auth", "token")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(out))
}
