package app

import (
	"path/filepath"

	"github.com/datastations/packaging-service/internal/platform/envutil"
)

type Config struct {
	APIKey        string
	SecretKey     string
	DataRoot      string
	UploadDir     string
	StoreDir      string
	WorkRoot      string
	BridgeConfDir string
}

func LoadConfig() Config {
	dataRoot := envutil.Str("DATA_ROOT", "/data/packaging")
	return Config{
		APIKey:        envutil.Str("API_KEY", ""),
		SecretKey:     envutil.Str("SECRET_KEY", ""),
		DataRoot:      dataRoot,
		UploadDir:     envutil.Str("UPLOAD_DIR", filepath.Join(dataRoot, "uploads")),
		StoreDir:      envutil.Str("STORE_DIR", filepath.Join(dataRoot, "store")),
		WorkRoot:      envutil.Str("WORK_ROOT", filepath.Join(dataRoot, "work")),
		BridgeConfDir: envutil.Str("BRIDGE_CONF_DIR", filepath.Join(dataRoot, "bridge-modules")),
	}
}
