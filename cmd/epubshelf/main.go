package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/converter"
	"github.com/yuanying/epubshelf/internal/server"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "epubshelf",
	Short: "Convert EPUB books and read them in the browser",
	Long: `epubshelf converts EPUB ebooks into self-contained book data
directories and serves them through a paginated web reading interface,
optionally with a chapter chat backed by a local Ollama server.`,
	SilenceUsage: true,
}

var convertCmd = &cobra.Command{
	Use:   "convert EPUB_FILE",
	Short: "Convert an EPUB into a book data directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir, _ := cmd.Flags().GetString("output")

		p := converter.New(converter.Options{
			InputPath: args[0],
			OutputDir: outputDir,
		}, logger)

		dir, err := p.Run()
		if err != nil {
			return fmt.Errorf("conversion failed: %w", err)
		}

		logger.Info("done", zap.String("dir", dir))
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve converted books over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		booksDir, _ := cmd.Flags().GetString("books")
		addr, _ := cmd.Flags().GetString("addr")
		ollamaURL, _ := cmd.Flags().GetString("ollama")
		model, _ := cmd.Flags().GetString("model")
		noChat, _ := cmd.Flags().GetBool("no-chat")

		store := book.NewStore(booksDir, logger)

		var chat *server.ChatService
		if !noChat {
			chat = server.NewChatService(ollamaURL, model)
		}

		srv, err := server.New(store, chat, logger)
		if err != nil {
			return err
		}

		logger.Info("starting server", zap.String("addr", addr), zap.String("books", booksDir))
		return http.ListenAndServe(addr, srv.Routes())
	},
}

func init() {
	convertCmd.Flags().StringP("output", "o", ".", "Parent directory for the book data directory")

	serveCmd.Flags().String("books", ".", "Directory containing *_data book directories")
	serveCmd.Flags().String("addr", "127.0.0.1:8123", "Listen address")
	serveCmd.Flags().String("ollama", "http://127.0.0.1:11434", "Ollama base URL for chapter chat")
	serveCmd.Flags().String("model", "llama3.1:8b", "Ollama model for chapter chat")
	serveCmd.Flags().Bool("no-chat", false, "Disable the chapter chat routes")

	rootCmd.AddCommand(convertCmd, serveCmd)
}

func main() {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableCaller = true
	var err error
	if logger, err = cfg.Build(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
