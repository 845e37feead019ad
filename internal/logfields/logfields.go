package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyOutcome    = "outcome"
	KeyReason     = "reason"
	KeySignals    = "signals"
	KeyPages      = "pages"
	KeyAssets     = "assets"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyDir        = "dir"
	KeyURL        = "url"
	KeyCommit     = "commit"
	KeySubject    = "subject"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Outcome(o string) slog.Attr       { return slog.String(KeyOutcome, o) }
func Reason(r string) slog.Attr        { return slog.String(KeyReason, r) }
func Signals(n int) slog.Attr          { return slog.Int(KeySignals, n) }
func Pages(n int) slog.Attr            { return slog.Int(KeyPages, n) }
func Assets(n int) slog.Attr           { return slog.Int(KeyAssets, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func File(f string) slog.Attr          { return slog.String(KeyFile, f) }
func Dir(d string) slog.Attr           { return slog.String(KeyDir, d) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Commit(c string) slog.Attr        { return slog.String(KeyCommit, c) }
func Subject(s string) slog.Attr       { return slog.String(KeySubject, s) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
