package modules

import "github.com/go-chi/chi/v5"

// Module registers its routes on the server router.
type Module interface {
	Mount(r chi.Router)
}
