// Package service implements command handling over the event store port.
package service
