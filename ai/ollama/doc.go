// Package ollama implements the ai interfaces against Ollama's native API.
//
// Embeddings are requested from POST /api/embeddings and answers from
// POST /api/chat with streaming disabled. The chat side goes through the
// langchaingo Ollama client; the embeddings side is a plain JSON request
// because that client only speaks the newer /api/embed endpoint.
//
//	provider, err := ollama.NewProvider(ai.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
package ollama
