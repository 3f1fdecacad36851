package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMetadata = `{
  "server": "tq",
  "resource-service": "https://resources.example.com/{type}/{url}",
  "image-service": {"npc-faction": "https://images.example.com/corporations/{faction_id}/logo?size=128"},
  "server-name": "Tranquility"
}`

const sampleStartIni = `[main]
version = 22.02
build = 2837215
`

func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

func completeWorkspace() map[string]string {
	return map[string]string{
		MetadataFile:                             sampleMetadata,
		StartIniFile:                             sampleStartIni,
		IndexFile:                                "res:/a.png,ab/cd,0123\n",
		ESIFile:                                  `{"BaseURL": "https://esi.example.com"}`,
		filepath.Join(FSDDir, "categories.json"): `{}`,
	}
}

func TestLoadWorkspace(t *testing.T) {
	root := writeWorkspace(t, completeWorkspace())

	ws, err := LoadWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, "tq", ws.Metadata.Server)
	assert.Equal(t, "Tranquility", ws.Metadata.ServerName)
	assert.Equal(t, "https://resources.example.com/{type}/{url}", ws.Metadata.ResourceService)
	assert.Equal(t, GameVersion{Version: "22.02", Build: "2837215"}, ws.Game)
	assert.Equal(t, `{"BaseURL": "https://esi.example.com"}`, string(ws.ESI), "esi.json keeps its original bytes")
	assert.Nil(t, ws.Links)
}

func TestMetadataImageURL(t *testing.T) {
	root := writeWorkspace(t, completeWorkspace())
	ws, err := LoadWorkspace(root)
	require.NoError(t, err)

	url, ok := ws.Metadata.ImageURL(ImageNPCFaction, map[string]string{"faction_id": "500001"})
	require.True(t, ok)
	assert.Equal(t, "https://images.example.com/corporations/500001/logo?size=128", url)

	_, ok = ws.Metadata.ImageURL("npc-corporation", nil)
	assert.False(t, ok)
}

func TestLoadWorkspaceMissingMetadataField(t *testing.T) {
	files := completeWorkspace()
	files[MetadataFile] = `{"server": "tq", "resource-service": "x", "image-service": {"npc-faction": "y"}}`
	root := writeWorkspace(t, files)

	_, err := LoadWorkspace(root)
	var fe FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "metadata.json.server-name", fe.Field)
}

func TestLoadWorkspaceRequiresImageService(t *testing.T) {
	files := completeWorkspace()
	files[MetadataFile] = `{"server": "tq", "resource-service": "x", "server-name": "Tranquility"}`
	root := writeWorkspace(t, files)

	_, err := LoadWorkspace(root)
	var fe FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "metadata.json.image-service", fe.Field)
}

func TestLoadWorkspaceMissingIndex(t *testing.T) {
	files := completeWorkspace()
	delete(files, IndexFile)
	root := writeWorkspace(t, files)

	_, err := LoadWorkspace(root)
	assert.Error(t, err)
}

func TestLoadWorkspaceRejectsInvalidJSON(t *testing.T) {
	files := completeWorkspace()
	files[LinksFile] = `{"broken":`
	root := writeWorkspace(t, files)

	_, err := LoadWorkspace(root)
	assert.Error(t, err)
}
