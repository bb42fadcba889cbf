package session

import (
	"fmt"
	"regexp"

	"github.com/emberchat/ember/internal/config"
)

var userIDRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Resolve determines the active user id using precedence:
// 1. flagOverride (--user flag)
// 2. config.toml default_user
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultUser != "" {
		return cfg.DefaultUser
	}
	return ""
}

// ValidateUserID checks that id conforms to user id naming rules. The id
// becomes a directory name, so path separators and dots are rejected.
func ValidateUserID(id string) error {
	if !userIDRegexp.MatchString(id) {
		return fmt.Errorf("invalid user id %q: must match ^[a-zA-Z0-9_-]{1,64}$", id)
	}
	return nil
}
