package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleOf(t *testing.T) {
	assert.Equal(t, "dev-introduction", titleOf("dev-introduction.docx"))
	assert.Equal(t, "Policy-A", titleOf("Policy-A"))
	assert.Equal(t, "notes.v2", titleOf("notes.v2.docx"))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{CredentialsFile: "key.json", FolderID: "folder", DownloadDir: "documents"}
	assert.NoError(t, cfg.Validate())

	for _, broken := range []Config{
		{FolderID: "folder", DownloadDir: "documents"},
		{CredentialsFile: "key.json", DownloadDir: "documents"},
		{CredentialsFile: "key.json", FolderID: "folder"},
	} {
		assert.Error(t, broken.Validate())
	}
}
