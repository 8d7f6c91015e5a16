package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Hubmakerlabs/reflectr/pkg/mirror/seen"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
local_relays:
  - name: home
    url: ws://localhost:7777
public_relays:
  - name: damus
    url: wss://relay.damus.io
event_filters:
  outbound:
    - kind: 1
  inbound:
    - kind: 1
      tags: [bitcoin]
    - authors: whitelist
mirroring:
  whitelist:
    - 4fdb07df4a683e3ee9b2a9d117e01bfe2548d7e8c0d4cb56d77e9c23091c3fc3
`

func run(t *testing.T, stdin string, args ...string) (out string, err error) {
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	app.Reader = strings.NewReader(stdin)
	err = app.Run(append([]string{"inspectr"}, args...))
	return buf.String(), err
}

func writeConfig(t *testing.T) string {
	name := filepath.Join(t.TempDir(), "mirror.yml")
	require.NoError(t, os.WriteFile(name, []byte(testConfig), 0600))
	return name
}

func note(pubkey string, k kind.T, t tags.T) string {
	ev := &event.T{PubKey: pubkey, CreatedAt: timestamp.Now(), Kind: k,
		Tags: t, Content: "gm", Sig: "00"}
	ev.ID = ev.ComputeID()
	return ev.String()
}

func TestCheck(t *testing.T) {
	cfg := writeConfig(t)
	stranger := strings.Repeat("a", 64)
	friend := "4fdb07df4a683e3ee9b2a9d117e01bfe2548d7e8c0d4cb56d77e9c23091c3fc3"
	input := strings.Join([]string{
		note(stranger, kind.TextNote, tags.T{{"t", "bitcoin"}}),
		note(stranger, kind.TextNote, tags.T{{"t", "cats"}}),
		"",
		note(friend, kind.Reaction, tags.T{}),
		`{"id":"broken"`,
	}, "\n")
	out, err := run(t, input, "check", "-c", cfg, "-d", "inbound")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "-:1 ")
	assert.Contains(t, lines[0], "eligible by rule 0")
	assert.Contains(t, lines[1], "rejected")
	assert.Contains(t, lines[2], "-:4 ")
	assert.Contains(t, lines[2], "eligible by rule 1")
	assert.Contains(t, lines[3], "malformed event")
	assert.Equal(t, "4 events, 2 eligible, 1 rejected, 1 unreadable", lines[4])
	out, err = run(t, input, "check", "-c", cfg, "-d", "outbound")
	require.NoError(t, err)
	assert.Contains(t, out, "4 events, 2 eligible, 1 rejected, 1 unreadable")
}

func TestCheckFilesAndVerify(t *testing.T) {
	cfg := writeConfig(t)
	good := note(strings.Repeat("b", 64), kind.TextNote, tags.T{})
	bad := strings.Replace(good, `"content":"gm"`, `"content":"gn"`, 1)
	name := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(name, []byte(good+"\n"+bad+"\n"), 0600))
	out, err := run(t, "", "check", "-c", cfg, "--verify", name)
	require.NoError(t, err)
	assert.Contains(t, out, name+":1 ")
	assert.Contains(t, out, "id does not match content")
	assert.Contains(t, out, "2 events, 1 eligible, 0 rejected, 1 unreadable")
}

func TestCheckErrors(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "", "check", "-c", cfg, "-d", "sideways")
	assert.ErrorContains(t, err, "unknown direction")
	_, err = run(t, "", "check", "-c", filepath.Join(t.TempDir(), "none.yml"))
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	out, err := run(t, "", "config", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "max_mirror_events: 10000")
	assert.Contains(t, out, "authors: whitelist")
	assert.Contains(t, out, "mode: hybrid")
}

func TestSeen(t *testing.T) {
	dir := t.TempDir()
	s, err := seen.OpenBadger(dir)
	require.NoError(t, err)
	for _, id := range []string{"a1", "b2", "c3"} {
		require.NoError(t, s.Add(id))
	}
	require.NoError(t, s.Close())

	out, err := run(t, "", "seen", "count", "--path", dir)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = run(t, "", "seen", "evict", "--path", dir, "--max", "2")
	require.NoError(t, err)
	assert.Equal(t, "removed 1\n", out)

	out, err = run(t, "", "seen", "has", "--path", dir, "a1", "c3")
	require.NoError(t, err)
	assert.Equal(t, "a1 false\nc3 true\n", out)

	_, err = run(t, "", "seen", "has", "--path", dir)
	assert.Error(t, err)
	_, err = run(t, "", "seen", "count")
	assert.Error(t, err)
}
