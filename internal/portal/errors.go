/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package portal

import "github.com/lavabit/magmad/internal/apperr"

// jsonrpcParamsError is the JSON-RPC 2.0 reserved code for "invalid
// method parameter(s)" (§4.6 step 4).
const jsonrpcParamsError = -32602

// jsonrpcInternalError is the JSON-RPC 2.0 reserved code for an
// unexpected server-side failure.
const jsonrpcInternalError = -32603

// codeBase assigns each symbolic taxonomy code a stable block of the
// numeric space; the method-specific offset (always 0 here, since the
// taxonomy is already symptom-granular) would be added in to let a
// client distinguish method-from-symptom per §4.6 step 4.
var codeBase = map[apperr.Code]int{
	apperr.InvalidRequest:        -32600,
	apperr.InvalidParams:         jsonrpcParamsError,
	apperr.InvalidReference:      -31001,
	apperr.InvalidKeyword:        -31002,
	apperr.IllegalCombination:    -31003,
	apperr.SystemFlagForbidden:   -31004,
	apperr.ConstraintViolation:   -31005,
	apperr.AuthFailed:            -31010,
	apperr.AuthThrottled:         -31011,
	apperr.AccountLocked:         -31012,
	apperr.PermissionDenied:      -31013,
	apperr.InvalidContainer:      -31020,
	apperr.InvalidKeyFormat:      -31021,
	apperr.InvalidKey:            -31022,
	apperr.AuthenticationFailed:  -31023,
	apperr.RetryLater:            -31030,
	apperr.InternalError:         jsonrpcInternalError,
}

// mapError translates any error returned by a handler into the
// numeric code, symbolic name, and message the JSON-RPC envelope
// carries. Errors not constructed via apperr are treated as internal
// and their text is not leaked to the caller.
func mapError(err error) (code int, symbol string, message string) {
	ae, ok := err.(*apperr.Error)
	if !ok {
		return jsonrpcInternalError, string(apperr.InternalError), "internal error"
	}
	c, ok := codeBase[ae.Code]
	if !ok {
		c = jsonrpcInternalError
	}
	return c, string(ae.Code), ae.Error()
}
