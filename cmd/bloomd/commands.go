package main

// commands registers every command the server answers.
func (app *application) commands() *Router {
	router := NewRouter()

	// Generic
	router.Handle("PING", app.handlePing)
	router.Handle("INFO", app.handleInfo)
	router.Handle("DEL", app.handleDel)
	router.Handle("EXISTS", app.handleExists)
	router.Handle("MEMORY", app.handleMemory)

	// Bloom filters
	router.Handle("BF.RESERVE", app.handleBFReserve)
	router.Handle("BF.ADD", app.handleBFAdd)
	router.Handle("BF.MADD", app.handleBFMAdd)
	router.Handle("BF.EXISTS", app.handleBFExists)
	router.Handle("BF.MEXISTS", app.handleBFMExists)
	router.Handle("BF.INFO", app.handleBFInfo)

	return router
}
