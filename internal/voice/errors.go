package voice

import "fmt"

// ErrorKind classifies recognition failures shown to the user.
type ErrorKind string

const (
	KindUnsupported      ErrorKind = "unsupported"
	KindInsecureContext  ErrorKind = "insecure-context"
	KindPermissionDenied ErrorKind = "permission-denied"
	KindNoSpeech         ErrorKind = "no-speech"
	KindAudioCapture     ErrorKind = "audio-capture"
	KindNetwork          ErrorKind = "network"
	KindStartConflict    ErrorKind = "start-conflict"
	KindAborted          ErrorKind = "aborted"
	KindUnknown          ErrorKind = "unknown"
)

var kindMessages = map[ErrorKind]string{
	KindUnsupported:      "お使いのブラウザは音声認識をサポートしていません",
	KindInsecureContext:  "音声入力にはHTTPSまたはlocalhostが必要です",
	KindPermissionDenied: "マイクの使用が許可されていません",
	KindNoSpeech:         "音声が検出されませんでした",
	KindAudioCapture:     "マイクにアクセスできません",
	KindNetwork:          "ネットワークエラーが発生しました",
	KindStartConflict:    "音声認識の開始に失敗しました（既に実行中の可能性があります）",
	KindAborted:          "認識が中断されました",
	KindUnknown:          "音声認識でエラーが発生しました",
}

// RecognitionError is a transient, user-facing voice error.
type RecognitionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func newRecognitionError(kind ErrorKind) *RecognitionError {
	msg, ok := kindMessages[kind]
	if !ok {
		msg = kindMessages[KindUnknown]
	}
	return &RecognitionError{Kind: kind, Message: msg}
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("voice: %s: %s", e.Kind, e.Message)
}

// kindForCode maps a recognizer error code to an ErrorKind.
func kindForCode(code string) ErrorKind {
	switch code {
	case "no-speech":
		return KindNoSpeech
	case "audio-capture":
		return KindAudioCapture
	case "not-allowed", "service-not-allowed":
		return KindPermissionDenied
	case "network":
		return KindNetwork
	case "aborted":
		return KindAborted
	default:
		return KindUnknown
	}
}

// fallbackCode reports codes that, in auto mode, retry with the other locale.
func fallbackCode(code string) bool {
	return code == "no-speech" || code == "aborted" || code == "network"
}
