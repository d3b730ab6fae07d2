package transport

import (
	"net/http"

	"github.com/tshop/admin/internal/definition"
)

func handleNavigation(defs *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, defs.Navigation())
	}
}
