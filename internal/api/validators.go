// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// strictIPv4Pattern matches a dotted-quad IPv4 address with no leading
// zeros in any octet (net.ParseIP has historically disagreed with
// other parsers about whether "010.0.0.1" means octal or decimal,
// which is exactly the ambiguity an incoming device address must not
// be allowed to exploit).
var strictIPv4Pattern = regexp.MustCompile(
	`^(25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])(\.(25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])){3}$`,
)

// newValidator builds the Handler's request validator, extending the
// stock tag set with ipv4strict for the device-address fields the
// subscribe/control/ingest payloads carry.
func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("ipv4strict", validateStrictIPv4); err != nil {
		panic("api: failed to register ipv4strict validator: " + err.Error())
	}
	return v
}

func validateStrictIPv4(fl validator.FieldLevel) bool {
	return strictIPv4Pattern.MatchString(fl.Field().String())
}
