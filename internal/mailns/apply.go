package mailns

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ObjectivityLtd/PSCI/internal/logfields"
)

// ManagementAPI is the slice of the management client the applier needs.
// *reporting.Client satisfies it; the admin endpoint lives on the same service.
type ManagementAPI interface {
	NewRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error)
	DoRequest(req *http.Request, result any) error
}

// Apply pushes computed virtual directory settings through the admin API, one
// protocol at a time so a failure names the protocol it died on.
func Apply(ctx context.Context, api ManagementAPI, ns Namespace, settings []Setting) error {
	for _, setting := range settings {
		endpoint := "/mail/namespaces/" + url.PathEscape(ns.Name) + "/virtualdirectories"
		req, err := api.NewRequest(ctx, "PUT", endpoint, setting)
		if err != nil {
			return err
		}
		if err := api.DoRequest(req, nil); err != nil {
			return err
		}
		slog.Info("Applied virtual directory URLs",
			logfields.Namespace(ns.Name),
			logfields.Protocol(string(setting.Protocol)),
			slog.String("internal_url", setting.InternalURL),
			slog.String("external_url", setting.ExternalURL))
	}
	return nil
}
