package api

// @title uaswitch API
// @version v0.1.0
// @description Local API for editing User-Agent override settings and inspecting the compiled header-rewrite rules.

// @host localhost:8778
// @BasePath /api
// @schemes http
