package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_BoundedExponential(t *testing.T) {
	cases := map[int]time.Duration{
		0: 1 * time.Second,
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
		4: 16 * time.Second,
		5: 30 * time.Second,
		6: 30 * time.Second,
		100: 30 * time.Second,
	}
	for attempt, want := range cases {
		assert.Equal(t, want, Backoff(attempt), "attempt=%d", attempt)
	}
}

func TestBackoff_NegativeAttemptClampsToZero(t *testing.T) {
	assert.Equal(t, Backoff(0), Backoff(-1))
}

func TestChildArgs_ForwardsListenDBKeysDir(t *testing.T) {
	cfg := Config{
		Cmd:     []string{"aureahost", "--log-level", "debug"},
		Listen:  ":8090",
		DB:      "./data/aurea.db",
		KeysDir: "./keys",
	}
	got := childArgs(cfg)
	assert.Equal(t, []string{
		"--log-level", "debug",
		"--listen", ":8090",
		"--db", "./data/aurea.db",
		"--keys-dir", "./keys",
	}, got)
}

func TestChildArgs_OmitsCmdArgv0(t *testing.T) {
	cfg := Config{Cmd: []string{"aureahost"}, Listen: ":8090", DB: "db", KeysDir: "keys"}
	got := childArgs(cfg)
	assert.NotContains(t, got, "aureahost")
}
