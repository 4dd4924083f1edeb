package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string) Entry {
	return Entry{
		ID:           id,
		Manufacturer: "star",
		Connection:   "Network",
		Description:  "TSP100",
		Descriptor:   json.RawMessage(`{"manufacturer":"star"}`),
	}
}

func TestNew(t *testing.T) {
	reg, err := New(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Empty(t, reg.All())
}

func TestNewRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := New(path)
	assert.Error(t, err)
}

func TestPutAndGet(t *testing.T) {
	reg, err := New("")
	require.NoError(t, err)

	stored, err := reg.Put(entry("star:TCP:192.168.1.20"))
	require.NoError(t, err)
	assert.False(t, stored.LastSeen.IsZero())

	got, ok := reg.Get("star:TCP:192.168.1.20")
	require.True(t, ok)
	assert.Equal(t, "TSP100", got.Description)
	assert.JSONEq(t, `{"manufacturer":"star"}`, string(got.Descriptor))

	_, ok = reg.Get("star:TCP:192.168.1.21")
	assert.False(t, ok)

	_, err = reg.Put(Entry{})
	assert.Error(t, err)
}

func TestPutKeepsCustomName(t *testing.T) {
	reg, _ := New("")

	_, err := reg.Put(entry("rongta:ip:10.0.0.7:9100"))
	require.NoError(t, err)

	ok, err := reg.SetName("rongta:ip:10.0.0.7:9100", "Kitchen")
	require.NoError(t, err)
	require.True(t, ok)

	// Rediscovery does not clear the name.
	_, err = reg.Put(entry("rongta:ip:10.0.0.7:9100"))
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", reg.GetName("rongta:ip:10.0.0.7:9100"))

	ok, err = reg.SetName("missing", "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "registry.json")

	reg, err := New(path)
	require.NoError(t, err)
	_, err = reg.Put(entry("epson:TCP:10.0.0.5"))
	require.NoError(t, err)
	_, err = reg.SetName("epson:TCP:10.0.0.5", "Front desk")
	require.NoError(t, err)

	reloaded, err := New(path)
	require.NoError(t, err)
	got, ok := reloaded.Get("epson:TCP:10.0.0.5")
	require.True(t, ok)
	assert.Equal(t, "Front desk", got.Name)
}

func TestRemove(t *testing.T) {
	reg, _ := New("")
	_, _ = reg.Put(entry("a"))
	_, _ = reg.Put(entry("b"))

	ok, err := reg.Remove("a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Remove("a")
	require.NoError(t, err)
	assert.False(t, ok)

	all := reg.All()
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
}

func TestAllSorted(t *testing.T) {
	reg, _ := New("")
	for _, id := range []string{"star:c", "epson:a", "rongta:b"} {
		_, _ = reg.Put(entry(id))
	}

	var ids []string
	for _, e := range reg.All() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"epson:a", "rongta:b", "star:c"}, ids)
}
