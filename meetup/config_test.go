package meetup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestReadConfigDefaults(t *testing.T) {
	c, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, err, nil)
	assert.Equal(t, c.Conf.ApiUrl, DefaultApiUrl)
	assert.Equal(t, c.Conf.ChatUrl, DefaultChatUrl)
	assert.Equal(t, c.Conf.PageSize, DefaultPageSize)
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	err := os.WriteFile(path, []byte(`conf:
  apiUrl: http://localhost:5000/api
  pageSize: 4
`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	c, err := ReadConfig(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, c.Conf.ApiUrl, "http://localhost:5000/api")
	// unset keys keep their defaults
	assert.Equal(t, c.Conf.ChatUrl, DefaultChatUrl)
	assert.Equal(t, c.Conf.PageSize, 4)
}

func TestReadConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	err := os.WriteFile(path, []byte(`conf:
  apiUrl: http://localhost:5000/api
`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEETUP_API_URL", "http://localhost:7000/api")
	t.Setenv("MEETUP_PAGE_SIZE", "25")

	c, err := ReadConfig(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, c.Conf.ApiUrl, "http://localhost:7000/api")
	assert.Equal(t, c.Conf.PageSize, 25)
}

func TestReadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	err := os.WriteFile(path, []byte(`conf:
  pageSize: -1
`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	_, err = ReadConfig(path)
	assert.NotEqual(t, err, nil)

	t.Setenv("MEETUP_PAGE_SIZE", "lots")
	_, err = ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotEqual(t, err, nil)
}
