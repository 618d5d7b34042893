package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loungeskip/loungeskip/internal/db"
)

const seedYAML = `apikey: yt-key
skip_categories:
  - sponsor
  - made_up_category
channel_whitelist:
  - id: UC1
    name: One
devices:
  - screen_id: screen-1
    name: Living Room
    offset: 0.3
mute_ads: true
join_name: lounge
`

func newSeedStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	pair, err := db.Init(filepath.Join(dir, "config.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })
	return New(pair, nil), dir
}

func TestImportSeed_PopulatesEmptyStore(t *testing.T) {
	st, dir := newSeedStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(seedYAML), 0o644))

	require.NoError(t, st.ImportSeed(dir))

	global, err := st.Global()
	require.NoError(t, err)
	require.Equal(t, "yt-key", global.APIKey)
	require.True(t, global.MuteAds)
	require.Equal(t, "lounge", global.JoinName)
	// Unknown categories are dropped, not fatal.
	require.Equal(t, []string{"sponsor"}, global.SkipCategories)
	require.Len(t, global.ChannelWhitelist, 1)

	devices, err := st.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "screen-1", devices[0].ScreenID)
	require.Equal(t, int64(300), devices[0].OffsetMS)
}

func TestImportSeed_NeverTouchesPopulatedStore(t *testing.T) {
	st, dir := newSeedStore(t)
	require.NoError(t, st.AddDevice(DeviceSnapshot{ScreenID: "existing"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(seedYAML), 0o644))

	require.NoError(t, st.ImportSeed(dir))

	devices, err := st.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "existing", devices[0].ScreenID)
}

func TestImportSeed_NoFileIsNoop(t *testing.T) {
	st, dir := newSeedStore(t)
	require.NoError(t, st.ImportSeed(dir))

	empty, err := st.Empty()
	require.NoError(t, err)
	require.True(t, empty)
}
