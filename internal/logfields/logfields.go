package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyDeploymentID = "deployment_id"
	KeyEnvironment  = "environment"
	KeyStep         = "step"
	KeyStepStatus   = "step_status"
	KeyItem         = "item"
	KeyItemType     = "item_type"
	KeyPath         = "path"
	KeyFolder       = "folder"
	KeyServer       = "server"
	KeyNamespace    = "namespace"
	KeyProtocol     = "protocol"
	KeyToken        = "token"
	KeyDurationMS   = "duration_ms"
	KeyScheduleID   = "schedule_id"
	KeySchedule     = "schedule_name"
	KeyRepo         = "repository"
	KeyURL          = "url"
	KeyName         = "name"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func DeploymentID(id string) slog.Attr  { return slog.String(KeyDeploymentID, id) }
func Environment(env string) slog.Attr  { return slog.String(KeyEnvironment, env) }
func Step(name string) slog.Attr        { return slog.String(KeyStep, name) }
func StepStatus(s string) slog.Attr     { return slog.String(KeyStepStatus, s) }
func Item(name string) slog.Attr        { return slog.String(KeyItem, name) }
func ItemType(t string) slog.Attr       { return slog.String(KeyItemType, t) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Folder(f string) slog.Attr         { return slog.String(KeyFolder, f) }
func Server(s string) slog.Attr         { return slog.String(KeyServer, s) }
func Namespace(n string) slog.Attr      { return slog.String(KeyNamespace, n) }
func Protocol(p string) slog.Attr       { return slog.String(KeyProtocol, p) }
func Token(name string) slog.Attr       { return slog.String(KeyToken, name) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func ScheduleID(id string) slog.Attr    { return slog.String(KeyScheduleID, id) }
func ScheduleName(n string) slog.Attr   { return slog.String(KeySchedule, n) }
func Repository(r string) slog.Attr     { return slog.String(KeyRepo, r) }
func URL(u string) slog.Attr            { return slog.String(KeyURL, u) }
func Name(n string) slog.Attr           { return slog.String(KeyName, n) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
