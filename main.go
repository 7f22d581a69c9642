// contentkit translates CMS content documents with DeepL or a generative model.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/minios-linux/contentkit/config"
	"github.com/minios-linux/contentkit/engine"
	"github.com/minios-linux/contentkit/i18n"
	"github.com/minios-linux/contentkit/langmeta"
	"github.com/minios-linux/contentkit/lockfile"
	"github.com/minios-linux/contentkit/logging"
	"github.com/minios-linux/contentkit/schema"
	"github.com/minios-linux/contentkit/settings"
	"github.com/minios-linux/contentkit/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

var stderr io.Writer = os.Stderr

func logInfo(format string, args ...any) {
	fmt.Fprintf(stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	envFile string
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "contentkit",
		Short: i18n.T("Translate CMS content documents"),
		Long: `contentkit translates structured CMS content (text fields, structures,
blocks, layouts, tables and tags) described by blueprints.

Commands:
  status      Show project settings and per-language document status
  translate   Translate documents into the configured languages
  sync        Copy untranslated content into other languages
  auth        Manage provider API keys

Providers:
  deepl          DeepL REST API (bulk)
  openai         OpenAI chat completions (generative)
  google         Google AI (Gemini) (generative)
  groq           Groq (generative)
  ollama         Ollama local server (generative)
  custom-openai  Custom OpenAI-compatible endpoint (generative)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to the .env file")

	root.AddCommand(
		newStatusCmd(),
		newTranslateCmd(),
		newSyncCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Project loading
// ---------------------------------------------------------------------------

// project bundles everything a command needs.
type project struct {
	file *config.File
	env  *config.Env
	docs *store.FileStore
	lock *lockfile.LockFile
	log  zerolog.Logger
}

func loadProject() (*project, error) {
	env, err := config.LoadEnv(resolveEnvFile())
	if err != nil {
		return nil, err
	}
	file, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf(i18n.T("no %s found in %s"), config.FileName, rootDir)
	}
	if err := env.Apply(file); err != nil {
		return nil, err
	}
	log, err := logging.New(os.Stderr, env.Environment, env.LogLevel)
	if err != nil {
		return nil, err
	}
	lock, err := lockfile.Load(rootDir)
	if err != nil {
		return nil, err
	}
	return &project{
		file: file,
		env:  env,
		docs: store.NewFileStore(file.AbsContentDir(), file.SourceLanguage),
		lock: lock,
		log:  log,
	}, nil
}

func resolveEnvFile() string {
	if envFile == "" || filepath.IsAbs(envFile) {
		return envFile
	}
	return filepath.Join(rootDir, envFile)
}

// selectLanguages returns the configured languages, narrowed by --lang.
func selectLanguages(file *config.File, flag string) ([]string, error) {
	if strings.TrimSpace(flag) == "" {
		return file.Languages, nil
	}
	var langs []string
	for _, l := range strings.Split(flag, ",") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if !file.HasLanguage(l) {
			return nil, fmt.Errorf(i18n.T("language %q is not configured"), l)
		}
		langs = append(langs, l)
	}
	return langs, nil
}

// selectPaths returns the document paths given as arguments, or every
// document of the store.
func selectPaths(ctx context.Context, docs *store.FileStore, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	return docs.List(ctx)
}

func withInterrupt() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "contentkit version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// status
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show project settings and per-language document status",
		Long: `Show the project configuration and, for every document and target
language, whether its translation is up to date, outdated or missing.
Does not modify any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), p)
		},
	}
}

func runStatus(ctx context.Context, out io.Writer, p *project) error {
	f := p.file
	langNames := make([]string, len(f.Languages))
	for i, l := range f.Languages {
		langNames[i] = fmt.Sprintf("%s (%s)", l, langmeta.Resolve(l).Name)
	}

	fmt.Fprintf(out, "%s%s%s\n", colorBlue, i18n.T("Project"), colorReset)
	fmt.Fprintf(out, "  %-12s %s\n", i18n.T("Source:"), f.SourceLanguage)
	fmt.Fprintf(out, "  %-12s %s\n", i18n.T("Languages:"), strings.Join(langNames, ", "))
	fmt.Fprintf(out, "  %-12s %s\n", i18n.T("Provider:"), f.Provider)
	fmt.Fprintf(out, "  %-12s %s\n", i18n.T("Model:"), f.ModelLabel())
	fmt.Fprintf(out, "  %-12s %s\n", i18n.T("Content:"), f.AbsContentDir())
	fmt.Fprintf(out, "  %-12s %s\n", i18n.T("Lock file:"), p.lock.Summary())

	paths, err := p.docs.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s%s%s\n", colorBlue, fmt.Sprintf(i18n.N("%d document", "%d documents", len(paths)), len(paths)), colorReset)

	for _, path := range paths {
		src, err := p.docs.Get(ctx, path, f.SourceLanguage)
		if err != nil {
			return err
		}
		sum, err := lockfile.DocumentChecksum(src.Title, src.Content)
		if err != nil {
			return err
		}
		var states []string
		for _, lang := range f.Languages {
			states = append(states, lang+": "+documentState(p, path, lang, sum))
		}
		fmt.Fprintf(out, "  %-30s %s\n", path, strings.Join(states, "  "))
	}
	return nil
}

func documentState(p *project, path, lang, checksum string) string {
	switch {
	case !p.docs.Exists(path, lang):
		return colorRed + i18n.T("missing") + colorReset
	case p.lock.IsChanged(lang, path, checksum):
		return colorYellow + i18n.T("outdated") + colorReset
	default:
		return colorGreen + i18n.T("up to date") + colorReset
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	langs   string
	apiKey  string
	force   bool
	dryRun  bool
	timeout time.Duration
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate [path...]",
		Short: "Translate documents into the configured languages",
		Long: `Translate the default-language version of each document into every
configured language. Documents whose source did not change since their last
translation are skipped unless --force is given.

Examples:
  # Translate every document
  contentkit translate

  # Translate one document into German only
  contentkit translate blog/hello --lang de

  # Show what would be translated
  contentkit translate --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			ctx, cancel := withInterrupt()
			defer cancel()
			return runTranslate(ctx, p, args, a)
		},
	}

	cmd.Flags().StringVar(&a.langs, "lang", "", "Languages to translate (comma-separated, default: all configured)")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key (or CONTENTKIT_DEEPL_API_KEY / CONTENTKIT_LLM_API_KEY)")
	cmd.Flags().BoolVar(&a.force, "force", false, "Translate documents even if their source is unchanged")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Show what would be translated without calling the provider")
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	return cmd
}

// pendingWork is one document and the languages it still needs.
type pendingWork struct {
	path     string
	checksum string
	langs    []string
}

func planTranslations(ctx context.Context, p *project, paths, langs []string, force bool) ([]pendingWork, error) {
	var work []pendingWork
	for _, path := range paths {
		src, err := p.docs.Get(ctx, path, p.file.SourceLanguage)
		if err != nil {
			return nil, err
		}
		sum, err := lockfile.DocumentChecksum(src.Title, src.Content)
		if err != nil {
			return nil, err
		}
		w := pendingWork{path: path, checksum: sum}
		for _, lang := range langs {
			if force || !p.docs.Exists(path, lang) || p.lock.IsChanged(lang, path, sum) {
				w.langs = append(w.langs, lang)
			}
		}
		if len(w.langs) > 0 {
			work = append(work, w)
		}
	}
	return work, nil
}

func runTranslate(ctx context.Context, p *project, args []string, a translateArgs) error {
	langs, err := selectLanguages(p.file, a.langs)
	if err != nil {
		return err
	}
	paths, err := selectPaths(ctx, p.docs, args)
	if err != nil {
		return err
	}
	work, err := planTranslations(ctx, p, paths, langs, a.force)
	if err != nil {
		return err
	}
	if len(work) == 0 {
		logSuccess("%s", i18n.T("All translations are up to date"))
		return nil
	}

	if a.dryRun {
		for _, w := range work {
			logInfo(i18n.T("%s: would translate into %s"), w.path, strings.Join(w.langs, ", "))
		}
		return nil
	}

	provider := p.file.Provider
	apiKey := settings.ResolveAPIKey(provider, a.apiKey, p.env.APIKey(provider))
	strat, err := engine.NewStrategy(engine.StrategyConfig{
		File:    p.file,
		APIKey:  apiKey,
		Timeout: a.timeout,
		Logger:  &p.log,
	})
	if err != nil {
		return err
	}
	svc := engine.NewService(p.docs, schema.NewDirResolver(p.file.AbsBlueprintDir()), store.NewCache(), strat,
		engine.NewServiceConfig(p.file, &p.log))

	var failed int
	for _, w := range work {
		if ctx.Err() != nil {
			break
		}
		logInfo(i18n.T("Translating %s into %s..."), w.path, strings.Join(w.langs, ", "))
		err := svc.TranslateLanguages(ctx, w.path, w.langs)

		var batch *engine.BatchError
		switch {
		case err == nil:
			for _, lang := range w.langs {
				p.lock.Update(lang, w.path, w.checksum)
			}
		case errors.As(err, &batch):
			for _, lang := range w.langs {
				if _, bad := batch.Failed[lang]; !bad {
					p.lock.Update(lang, w.path, w.checksum)
				}
			}
			for _, lang := range batch.Languages() {
				logError("%s (%s): %v", w.path, lang, batch.Failed[lang])
			}
			failed++
		default:
			logError("%s: %v", w.path, err)
			failed++
		}
	}

	if err := p.lock.Save(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		logWarning("%s", i18n.T("Interrupted, progress saved"))
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf(i18n.N("%d document failed", "%d documents failed", failed), failed)
	}
	logSuccess("%s", i18n.T("Translation complete"))
	return nil
}

// ---------------------------------------------------------------------------
// sync
// ---------------------------------------------------------------------------

func newSyncCmd() *cobra.Command {
	var langs string

	cmd := &cobra.Command{
		Use:   "sync [path...]",
		Short: "Copy untranslated content into other languages",
		Long: `Copy the translatable fields of the default-language version of each
document into the configured languages without translating them. Fields
marked "translate: false" are left out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			ctx, cancel := withInterrupt()
			defer cancel()
			return runSync(ctx, p, args, langs)
		},
	}
	cmd.Flags().StringVar(&langs, "lang", "", "Languages to sync (comma-separated, default: all configured)")
	return cmd
}

func runSync(ctx context.Context, p *project, args []string, langFlag string) error {
	langs, err := selectLanguages(p.file, langFlag)
	if err != nil {
		return err
	}
	paths, err := selectPaths(ctx, p.docs, args)
	if err != nil {
		return err
	}
	svc := engine.NewService(p.docs, schema.NewDirResolver(p.file.AbsBlueprintDir()), nil, nil,
		engine.NewServiceConfig(p.file, &p.log))

	for _, path := range paths {
		for _, lang := range langs {
			if err := svc.SyncDocument(ctx, path, lang); err != nil {
				return err
			}
		}
		logSuccess(i18n.T("%s synced"), path)
	}
	return nil
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

var keyProviders = []string{
	config.ProviderDeepL, config.ProviderOpenAI, config.ProviderGoogle,
	config.ProviderGroq, config.ProviderCustomOpenAI,
}

func isKeyProvider(id string) bool {
	for _, p := range keyProviders {
		if p == id {
			return true
		}
	}
	return false
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
	}
	cmd.AddCommand(newAuthLoginCmd(), newAuthLogoutCmd(), newAuthListCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:       "login <provider>",
		Short:     "Store an API key",
		Args:      cobra.ExactArgs(1),
		ValidArgs: keyProviders,
		RunE: func(cmd *cobra.Command, args []string) error {
			return authLogin(cmd.InOrStdin(), args[0], baseURL)
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Endpoint URL (custom-openai)")
	return cmd
}

func authLogin(in io.Reader, providerID, baseURL string) error {
	if !isKeyProvider(providerID) {
		return fmt.Errorf(i18n.T("unknown provider %q"), providerID)
	}
	if existing := settings.GetAPIKey(providerID); existing != "" {
		fmt.Fprintf(stderr, i18n.T("  Current key: %s\n"), settings.MaskKey(existing))
	}
	fmt.Fprint(stderr, i18n.T("  Enter API key: "))

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return errors.New(i18n.T("no input received"))
	}
	key := strings.TrimSpace(scanner.Text())
	if key == "" {
		return errors.New(i18n.T("no API key provided"))
	}
	if err := settings.SetAPIKey(providerID, key, baseURL); err != nil {
		return err
	}
	logSuccess(i18n.T("%s API key saved"), providerID)
	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout [provider]",
		Short: "Remove stored API keys (all providers by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := keyProviders
			if len(args) == 1 {
				if !isKeyProvider(args[0]) {
					return fmt.Errorf(i18n.T("unknown provider %q"), args[0])
				}
				targets = args
			}
			for _, id := range targets {
				if err := settings.Remove(id); err != nil {
					return err
				}
			}
			logSuccess("%s", i18n.T("Credentials removed"))
			return nil
		},
	}
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored API keys",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s%s%s (%s)\n", colorBlue, i18n.T("Stored credentials"), colorReset, settings.FilePath())
			for _, id := range keyProviders {
				key := settings.GetAPIKey(id)
				if key == "" {
					fmt.Fprintf(out, "  %-14s %s%s%s\n", id, colorRed, i18n.T("not configured"), colorReset)
					continue
				}
				status := fmt.Sprintf("%s%s%s (%s)", colorGreen, i18n.T("configured"), colorReset, settings.MaskKey(key))
				if u := settings.GetBaseURL(id); u != "" {
					status += " " + u
				}
				fmt.Fprintf(out, "  %-14s %s\n", id, status)
			}
		},
	}
}
