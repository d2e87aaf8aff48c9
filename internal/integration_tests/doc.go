// Package integration_tests holds end-to-end tests that run graph documents
// through the application: loading, assembly, execution and the printed
// RunResult. Each subdirectory covers one area of behaviour.
package integration_tests
