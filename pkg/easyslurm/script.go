package easyslurm

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/YodaEmbedding/easy-slurm/pkg/format"
)

// Raw script templates. Placeholders are written as {{name}}; bare braces
// are shell syntax. prepareTemplate converts this into renderer syntax.
var (
	//go:embed templates/job.sh
	rawJobTemplate string

	//go:embed templates/job_interactive.sh
	rawInteractiveTemplate string
)

var (
	jobTemplate         = prepareTemplate(rawJobTemplate)
	interactiveTemplate = prepareTemplate(rawInteractiveTemplate)
)

// prepareTemplate swaps the raw template's brace conventions into the
// renderer's: {{name}} spans become {name} placeholders and every bare
// shell brace becomes an escaped literal.
func prepareTemplate(s string) string {
	s = strings.Trim(s, "\n")
	s = strings.ReplaceAll(s, "{{", "\x00")
	s = strings.ReplaceAll(s, "}}", "\x01")
	s = strings.ReplaceAll(s, "{", "{{")
	s = strings.ReplaceAll(s, "}", "}}")
	s = strings.ReplaceAll(s, "\x00", "{")
	return strings.ReplaceAll(s, "\x01", "}")
}

// syncFragments holds the shell code spliced into extract_results and
// save_results for each results-sync method.
type syncFragmentPair struct {
	extract string
	save    string
}

var syncFragments = map[string]syncFragmentPair{
	"rsync": {
		extract: `
			mkdir -p "$JOB_DIR/results" "$SLURM_TMPDIR/results"
			rsync -a "$JOB_DIR/results/" "$SLURM_TMPDIR/results/"
		`,
		save: `
			rsync -a "$SLURM_TMPDIR/results/" "$JOB_DIR/results/"
		`,
	},
	"symlink": {
		extract: `
			mkdir -p "$JOB_DIR/results"
			ln -sfn "$JOB_DIR/results" "$SLURM_TMPDIR/results"
		`,
		save: `
			# Writes land in $JOB_DIR/results directly; nothing to save.
			:
		`,
	},
	"targz": {
		extract: `
			mkdir -p "$SLURM_TMPDIR/results"
			if [ -f "$JOB_DIR/results.tar.gz" ]; then
			  tar xf "$JOB_DIR/results.tar.gz"
			fi
		`,
		save: `
			tar czf results.tar.gz results
			mv results.tar.gz "$JOB_DIR/"
		`,
	},
}

// ResultsSyncMethods lists the supported results-staging strategies.
func ResultsSyncMethods() []string {
	methods := make([]string, 0, len(syncFragments))
	for m := range syncFragments {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// scriptSource compiles the batch script for a job directory.
func scriptSource(cfg *Config, jobDir string) (string, error) {
	fragments, ok := syncFragments[cfg.ResultsSyncMethod]
	if !ok {
		return "", fmt.Errorf("unknown results sync method %q (choose one of %s)",
			cfg.ResultsSyncMethod, strings.Join(ResultsSyncMethods(), ", "))
	}

	vars := map[string]any{
		"sbatch_options":  sbatchDirectives(cfg.SbatchOptions, jobDir, cfg.CleanupSeconds),
		"version":         Version,
		"job_dir":         jobDir,
		"dataset_path":    expandPath(cfg.Dataset),
		"resubmit_limit":  cfg.ResubmitLimit,
		"on_run":          quoteSingleQuotes(strings.TrimSpace(cfg.OnRun)),
		"on_run_resume":   quoteSingleQuotes(strings.TrimSpace(cfg.OnRunResume)),
		"setup":           fixIndent(cfg.Setup, 1),
		"setup_resume":    fixIndent(cfg.SetupResume, 1),
		"teardown":        fixIndent(cfg.Teardown, 1),
		"extract_results": fixIndent(fragments.extract, 1),
		"save_results":    fixIndent(fragments.save, 1),
	}

	src, err := format.Render(jobTemplate, vars)
	if err != nil {
		return "", fmt.Errorf("render job script: %w", err)
	}
	return src + "\n", nil
}

// interactiveScriptSource compiles the companion script that sources the
// batch script in interactive mode for foreground debugging.
func interactiveScriptSource(cfg *Config, jobDir, jobPath string) (string, error) {
	vars := map[string]any{
		"sbatch_options": sbatchDirectives(cfg.SbatchOptions, jobDir, cfg.CleanupSeconds),
		"job_path":       jobPath,
	}

	src, err := format.Render(interactiveTemplate, vars)
	if err != nil {
		return "", fmt.Errorf("render interactive script: %w", err)
	}
	return src + "\n", nil
}

// sbatchDirectives renders the #SBATCH header. User options are emitted in
// sorted key order for deterministic output; output and signal are always
// overridden so logs land in the job directory and the runtime receives
// its cleanup signal before the time limit.
func sbatchDirectives(options map[string]any, jobDir string, cleanupSeconds int) string {
	merged := make(map[string]string, len(options)+2)
	for k, v := range options {
		merged[k] = fmt.Sprint(v)
	}
	merged["output"] = jobDir + "/slurm_jobid%j_%x.out"
	merged["signal"] = fmt.Sprintf("B:USR1@%d", cleanupSeconds)

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("#SBATCH --%s=%s", k, merged[k])
	}
	return strings.Join(lines, "\n")
}

// quoteSingleQuotes escapes s for embedding inside a single-quoted shell
// string: each ' becomes '"'"'.
func quoteSingleQuotes(s string) string {
	return strings.ReplaceAll(s, `'`, `'"'"'`)
}

// fixIndent dedents a hook body and reindents it by two spaces per level,
// preserving the caller's relative indentation.
func fixIndent(s string, level int) string {
	s = strings.Trim(s, "\n")
	lines := strings.Split(s, "\n")

	margin := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		if indent := len(line) - len(trimmed); margin < 0 || indent < margin {
			margin = indent
		}
	}
	if margin < 0 {
		margin = 0
	}

	prefix := strings.Repeat("  ", level)
	for i, line := range lines {
		if len(line) >= margin {
			line = line[margin:]
		} else {
			line = strings.TrimLeft(line, " \t")
		}
		if strings.TrimSpace(line) != "" {
			line = prefix + line
		}
		lines[i] = line
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n ")
}
