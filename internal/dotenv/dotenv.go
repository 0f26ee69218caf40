// Package dotenv loads .env configuration. A missing file is fine;
// real deployments pass everything through the environment.
package dotenv

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load reads the given .env files into the process environment,
// defaulting to ./.env when none are named. Variables already set in
// the environment win.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
