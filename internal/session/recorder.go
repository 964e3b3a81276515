package session

// Recorder はセッションのライフサイクルイベントを記録するインターフェース。
// metrics.Collector が実装する。
type Recorder interface {
	RecordRestore(restored bool)
	RecordStorageCorrupt()
	RecordLogin()
	RecordLoginFailure(reason string)
	RecordLogout()
}

type noopRecorder struct{}

func (noopRecorder) RecordRestore(bool)        {}
func (noopRecorder) RecordStorageCorrupt()     {}
func (noopRecorder) RecordLogin()              {}
func (noopRecorder) RecordLoginFailure(string) {}
func (noopRecorder) RecordLogout()             {}
