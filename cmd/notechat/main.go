package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"notechat/internal/agent"
	"notechat/internal/config"
	"notechat/internal/domain"
	"notechat/internal/generation"
	"notechat/internal/generation/gemini"
	"notechat/internal/generation/openai"
	"notechat/internal/logging"
	"notechat/internal/notes"
	"notechat/internal/service"
	"notechat/internal/session"
	"notechat/internal/storage"
	"notechat/internal/storage/file"
	"notechat/internal/storage/memory"
	"notechat/internal/storage/redis"
	"notechat/internal/storage/sqlite"
	"notechat/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, sessionName, agentFlag string
	var importNotes bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/notechat/config.yaml if not provided)")
	flag.StringVar(&sessionName, "session", "default", "Session name; each session keeps its own transcript")
	flag.StringVar(&agentFlag, "agent", "", "Agent to start with: smart-chat, rag or web-search")
	flag.BoolVar(&importNotes, "import", false, "Import the given note files into the SQLite notes database and exit")
	flag.Parse()
	inputs := flag.Args()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		File:       expandHome(cfg.Log.File),
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("failed to open log: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	paths := cfg.Notes.Paths
	if len(inputs) > 0 {
		paths = inputs
	}
	for i := range paths {
		paths[i] = expandHome(paths[i])
	}

	if importNotes {
		if len(inputs) == 0 {
			fmt.Println("Usage: notechat --import [--config=config.yaml] notes_dir_or_file [...]")
			os.Exit(1)
		}
		db, err := notes.OpenSQLite(expandHome(cfg.Notes.SQLitePath))
		if err != nil {
			log.Fatalf("open notes database: %v", err)
		}
		defer db.Close()
		n, err := db.Import(ctx, notes.NewDirStore(paths...))
		if err != nil {
			log.Fatalf("import failed: %v", err)
		}
		logger.Info("notes imported", zap.Int("count", n), zap.Strings("paths", paths))
		fmt.Printf("Imported %d notes into %s\n", n, cfg.Notes.SQLitePath)
		return
	}

	// Assemble components
	var kv storage.KV
	switch cfg.Storage.Type {
	case "file", "":
		kv, err = file.New(expandHome(cfg.Storage.Dir))
	case "memory":
		kv = memory.New()
	case "sqlite":
		kv, err = sqlite.Open(expandHome(cfg.Storage.SQLitePath))
	case "redis":
		if cfg.Storage.Redis == nil {
			log.Fatalf("redis storage config missing")
		}
		kv, err = redis.Open(ctx, redis.Config{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		})
	default:
		log.Fatalf("unknown storage: %s", cfg.Storage.Type)
	}
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}

	var store domain.NoteStore
	switch cfg.Notes.Type {
	case "dir", "":
		store = notes.NewDirStore(paths...)
	case "sqlite":
		db, err := notes.OpenSQLite(expandHome(cfg.Notes.SQLitePath))
		if err != nil {
			log.Fatalf("open notes database: %v", err)
		}
		defer db.Close()
		store = db
	default:
		log.Fatalf("unknown notes store: %s", cfg.Notes.Type)
	}

	apiKey := os.Getenv(cfg.Generator.APIKeyEnv)
	var gen generation.Generator
	switch cfg.Generator.Type {
	case "gemini", "":
		gen = gemini.New(gemini.Config{
			APIKey:    apiKey,
			APIKeyEnv: cfg.Generator.APIKeyEnv,
			Model:     cfg.Generator.Model,
			BaseURL:   cfg.Generator.BaseURL,
		})
	case "openai":
		gen = openai.NewClient(openai.Config{
			BaseURL:       cfg.Generator.BaseURL,
			APIKeyEnv:     cfg.Generator.APIKeyEnv,
			Model:         cfg.Generator.Model,
			HeaderTimeout: time.Duration(cfg.Generator.HeaderTimeoutSecs) * time.Second,
			MaxRetries:    cfg.Generator.MaxRetries,
		})
	default:
		log.Fatalf("unknown generator: %s", cfg.Generator.Type)
	}
	var keyHint string
	if strings.TrimSpace(apiKey) == "" {
		keyHint = fmt.Sprintf("API key not configured: set %s in the environment or a .env file.", cfg.Generator.APIKeyEnv)
	}

	index := notes.NewIndex(store, time.Duration(cfg.Notes.CacheTTLMins)*time.Minute)
	router := service.NewRouter(agent.NewRegistry(gen, index), logger)

	defaultAgent, err := agent.ParseID(cfg.Chat.DefaultAgent)
	if err != nil {
		log.Fatalf("chat.default_agent: %v", err)
	}
	sess, err := session.Load(ctx, kv, sessionName, defaultAgent, logger)
	if err != nil {
		log.Fatalf("load session: %v", err)
	}
	if agentFlag != "" {
		id, err := agent.ParseID(agentFlag)
		if err != nil {
			log.Fatalf("--agent: %v", err)
		}
		if err := sess.SetAgent(ctx, id); err != nil {
			log.Fatalf("save session: %v", err)
		}
	}
	sess.Attach(ctx)

	logger.Info("starting",
		zap.String("generator", gen.Name()),
		zap.String("notes", cfg.Notes.Type),
		zap.String("storage", cfg.Storage.Type),
		zap.String("session", sessionName),
		zap.String("agent", string(sess.Agent())))

	m := tui.New(tui.Options{
		Session: sess,
		Router:  router,
		Timeout: time.Duration(cfg.Chat.TimeoutSecs) * time.Second,
		KeyHint: keyHint,
		Logger:  logger,
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		logger.Error("tui exited", zap.Error(err))
		log.Fatal(err)
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
