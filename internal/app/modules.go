package app

import (
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/modules/env_vars"
	"github.com/specialistvlad/cyclegrid/modules/expr"
	"github.com/specialistvlad/cyclegrid/modules/http_request"
	"github.com/specialistvlad/cyclegrid/modules/print"
	"github.com/specialistvlad/cyclegrid/modules/socketio_request"
)

// coreModules returns every module compiled into the cyclegrid binary.
// Modules may keep state, so each App gets fresh values.
func coreModules() []registry.Module {
	return []registry.Module{
		&expr.Module{},
		&env_vars.Module{},
		&print.Module{},
		&http_request.Module{},
		&socketio_request.Module{},
	}
}
