package domain

// Stage names a step of the packaging pipeline
type Stage string

const (
	StageResolve        Stage = "resolve"
	StageCompile        Stage = "compile"
	StagePatchManifest  Stage = "patchManifest"
	StageAssemble       Stage = "assemble"
	StageVerify         Stage = "verify"
	StagePublish        Stage = "publish"
	StagePrepareSandbox Stage = "prepareSandbox"
	StageRunIDE         Stage = "runIde"
)

// String returns the string representation of Stage
func (s Stage) String() string {
	return string(s)
}
