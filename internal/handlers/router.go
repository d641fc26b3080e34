package handlers

import (
	"github.com/gorilla/mux"
)

// NewRouter wires every endpoint onto a fresh mux router.
func NewRouter(app *AppHandler, authH *AuthHandler, files *FilesHandler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/status", app.Status).Methods("GET")
	router.HandleFunc("/stats", app.Stats).Methods("GET")

	router.HandleFunc("/users", authH.Register).Methods("POST")
	router.HandleFunc("/users/me", authH.Me).Methods("GET")
	router.HandleFunc("/connect", authH.Connect).Methods("GET")
	router.HandleFunc("/disconnect", authH.Disconnect).Methods("GET")

	router.HandleFunc("/files", files.Upload).Methods("POST")
	router.HandleFunc("/files", files.Index).Methods("GET")
	router.HandleFunc("/files/{id}", files.Show).Methods("GET")
	router.HandleFunc("/files/{id}/publish", files.Publish).Methods("PUT")
	router.HandleFunc("/files/{id}/unpublish", files.Unpublish).Methods("PUT")
	router.HandleFunc("/files/{id}/data", files.Data).Methods("GET")

	return router
}
