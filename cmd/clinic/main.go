package main

import (
	"CampusClinic/internal/bootstrap"
	pkg "CampusClinic/pkg/routes"

	"go.uber.org/fx"
)

func main() {
	bootstrap.Loadenv()
	app := fx.New(pkg.EchoModules)
	app.Run()
}
