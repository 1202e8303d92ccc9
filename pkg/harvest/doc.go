// Package harvest defines the platform-neutral media harvesting model: reference
// classification, channel and message projections, the media filter, error
// taxonomy and the capability ports implemented by platform drivers.
package harvest
