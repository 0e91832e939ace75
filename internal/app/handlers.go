package app

import (
	"github.com/datastations/packaging-service/internal/bridge"
	"github.com/datastations/packaging-service/internal/handlers"
)

type Handlers struct {
	Dataset  *handlers.DatasetHandler
	Upload   *handlers.UploadHandler
	Registry *handlers.RegistryHandler
	Assets   *handlers.AssetHandler
}

func wireHandlers(svcs Services, registry *bridge.Registry) Handlers {
	return Handlers{
		Dataset:  handlers.NewDatasetHandler(svcs.Submission),
		Upload:   handlers.NewUploadHandler(svcs.Upload),
		Registry: handlers.NewRegistryHandler(registry),
		Assets:   handlers.NewAssetHandler(svcs.Assets),
	}
}
