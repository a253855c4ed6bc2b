package interfaces

import (
	"github.com/google/wire"

	"jan-server/services/envchat-api/internal/interfaces/httpserver"
)

var InterfacesProvider = wire.NewSet(
	httpserver.NewHttpServer,
)
