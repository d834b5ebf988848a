package cmd

import (
	"log/slog"

	"github.com/sarchlab/nbmsg/comm"
	"github.com/sarchlab/nbmsg/monitoring"
)

func startMonitor(
	world *comm.World,
	port int,
	openBrowser bool,
	logger *slog.Logger,
) *monitoring.Monitor {
	m := monitoring.NewMonitor().WithPortNumber(port)
	m.RegisterWorld(world)

	url := m.StartServer()

	if openBrowser {
		err := m.OpenBrowser(url)
		if err != nil {
			logger.Warn("cannot open browser", "url", url, "err", err)
		}
	}

	return m
}
