package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           llmedged API
// @version         1.0
// @description     HTTP API for on-device model lifecycle and generation.
//
// @contact.name   llmedged maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
