// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies a catalog entry.
type Id int

const (
	PlanNotFoundId Id = iota + 1
	PlanInvalidId
	StepFailedId
	StepNotFoundId
	InterpreterNotFoundId
	InputRejectedId
	DisclosureRejectedId
	NamespaceMissingId
	NamespaceBusyId
	SecretMissingId
	ConfigLoadFailedId
)

type (
	// MarkdownMsg is catalog text rendered with glamour.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string

	// Issue is one catalog entry.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id { return i.id }

func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// DocLinks returns a copy of the issue's documentation links.
func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// Render renders the issue as terminal Markdown. stylePath is a glamour
// style name ("dark", "light", "notty") or a JSON style file.
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	planNotFoundIssue = &Issue{
		id: PlanNotFoundId,
		mdMsg: `
# No collection config found!

pstand looks for _collection_config.yaml (or .yml, .toml, .cue) in the
current directory and then in each parent directory.

## Things you can try:
- Run pstand from inside your collection directory
- Point at a config explicitly:
~~~
$ pstand run --plan ./path/to/_collection_config.yaml
~~~

## Minimal config:
~~~yaml
collection_order:
  - fetch.js
  - report.js
~~~`,
	}

	planInvalidIssue = &Issue{
		id: PlanInvalidId,
		mdMsg: `
# Invalid collection config!

The collection config could not be parsed or does not match the expected shape.

## Common causes:
- collection_order is missing or empty
- A step name is blank or points outside the steps directory
- An unknown policy value in globalInputs or returnable_globals

## Things you can try:
~~~
$ pstand validate
~~~`,
	}

	stepFailedIssue = &Issue{
		id: StepFailedId,
		mdMsg: `
# A step failed!

The step exited with a non-zero status and the run was stopped. Steps that
already finished keep their Global Store writes.

## Things you can try:
- Inspect the run log:
~~~
$ pstand status
~~~
- Re-run the failing step on its own:
~~~
$ pstand step <name>
~~~`,
	}

	stepNotFoundIssue = &Issue{
		id: StepNotFoundId,
		mdMsg: `
# Step not found!

A step named in collection_order has no file in the steps directory
(_scripts by default).

## Things you can try:
- Check the spelling, including the extension (fetch.js, not fetch)
- Check steps_dir in your pstand config
- Extension-less steps must be executable:
~~~
$ chmod +x _scripts/<name>
~~~`,
	}

	interpreterNotFoundIssue = &Issue{
		id: InterpreterNotFoundId,
		mdMsg: `
# Interpreter not found!

The interpreter for this step's extension is not on PATH.

## Things you can try:
- Install it (node for .js, python3 for .py)
- Map the extension to another command in your pstand config:
~~~cue
interpreters: {
	".js": "bun run"
}
~~~`,
	}

	inputRejectedIssue = &Issue{
		id: InputRejectedId,
		mdMsg: `
# Input rejected!

The globalInputs policy is "specified" and the payload contains keys that are
not allowed, have the wrong type, or do not match their regex. No key from
the payload was applied.

## Things you can try:
- Compare the payload with globalInputs.allowed in the collection config
- Numbers must be sent as JSON numbers, not strings`,
	}

	disclosureRejectedIssue = &Issue{
		id: DisclosureRejectedId,
		mdMsg: `
# Returned globals rejected!

The run completed but the requested return_globals are not permitted by the
returnable_globals policy, or a requested key does not exist.

## Things you can try:
- Use "anyspecified" to receive every allowed key
- Request only keys listed in returnable_globals.allowed`,
	}

	namespaceMissingIssue = &Issue{
		id: NamespaceMissingId,
		mdMsg: `
# No run namespace!

In an ephemeral host the Global Store location must come from
PSTAND_GLOBALS_DIR, which the orchestrator sets for every step.

## Things you can try:
- Run this command from a step launched by pstand
- For local debugging force the host kind:
~~~
$ PSTAND_HOST=local pstand globals list
~~~`,
	}

	namespaceBusyIssue = &Issue{
		id: NamespaceBusyId,
		mdMsg: `
# Namespace in use!

Another pstand run holds the lock on this Global Store directory. Two runs
sharing one store would overwrite each other's keys.

## Things you can try:
- Wait for the other run to finish
- Use a separate directory via PSTAND_GLOBALS_DIR`,
	}

	secretMissingIssue = &Issue{
		id: SecretMissingId,
		mdMsg: `
# Secret not found!

## Things you can try:
- Declare the secret name under secrets: in the collection config
- For local runs set userLocalSecrets: true and place the value in
  ../.secrets/do_not_git/<name>
- Check the AWS region and credentials used for Secrets Manager`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check the CUE syntax of your config file
- Print the effective configuration:
~~~
$ pstand config show
~~~`,
	}

	issues = map[Id]*Issue{
		planNotFoundIssue.Id():        planNotFoundIssue,
		planInvalidIssue.Id():         planInvalidIssue,
		stepFailedIssue.Id():          stepFailedIssue,
		stepNotFoundIssue.Id():        stepNotFoundIssue,
		interpreterNotFoundIssue.Id(): interpreterNotFoundIssue,
		inputRejectedIssue.Id():       inputRejectedIssue,
		disclosureRejectedIssue.Id():  disclosureRejectedIssue,
		namespaceMissingIssue.Id():    namespaceMissingIssue,
		namespaceBusyIssue.Id():       namespaceBusyIssue,
		secretMissingIssue.Id():       secretMissingIssue,
		configLoadFailedIssue.Id():    configLoadFailedIssue,
	}
)

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id - b.id) })
	return out
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
