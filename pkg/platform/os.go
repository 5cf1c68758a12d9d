// SPDX-License-Identifier: MPL-2.0

package platform

// OS name constants for runtime.GOOS comparisons.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// Handoff environment variables projected into every step process.
const (
	// EnvGlobalsDir holds the directory of the run's Global Store namespace.
	EnvGlobalsDir = "PSTAND_GLOBALS_DIR"
	// EnvFunctionRoot holds the collection root (where the plan lives).
	EnvFunctionRoot = "PSTAND_FUNCTION_ROOT"
	// EnvRunID holds the identifier of the current run.
	EnvRunID = "PSTAND_RUN_ID"
	// EnvStep holds the identifier of the step being executed.
	EnvStep = "PSTAND_STEP"
	// EnvVerbose is "true" when step output should be shown.
	EnvVerbose = "PSTAND_VERBOSE"
	// EnvConfigPath points steps at the application config in use.
	EnvConfigPath = "PSTAND_CONFIG_PATH"
	// EnvHost forces the host kind ("ephemeral" or "local").
	EnvHost = "PSTAND_HOST"

	// HandoffPrefix is shared by every handoff variable.
	HandoffPrefix = "PSTAND_"
)

// Variables whose presence identifies an AWS Lambda execution environment.
const (
	EnvLambdaFunctionName = "AWS_LAMBDA_FUNCTION_NAME"
	EnvLambdaExecutionEnv = "AWS_EXECUTION_ENV"
	EnvLambdaTaskRoot     = "LAMBDA_TASK_ROOT"
	// EnvRequestID is set by adapters that know the invocation's request id.
	EnvRequestID = "AWS_REQUEST_ID"
)
