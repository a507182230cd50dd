// SPDX-License-Identifier: Apache 2.0

package sdls

import (
	"github.com/nasa-itc/sdls/internal/config"
	"github.com/nasa-itc/sdls/internal/sa"
	"github.com/nasa-itc/sdls/internal/sdlspdu"
)

// Aliases for the internal types that appear in the facade's public
// signatures, so embedders can name and construct them without
// reaching into internal packages.

// GVCID is the Global Virtual Channel Identifier tuple naming a
// communication channel at the SDLP/SDLS layer.
type GVCID = sa.GVCID

// SecurityAssociation is the per-channel cryptographic context
// returned by SAStatus and ListSAs.
type SecurityAssociation = sa.SecurityAssociation

// Config is the process-wide policy registry accepted by Configure.
type Config = config.Config

// FSR is the Frame Security Report word carried in process reports
// and SDLS PDU replies.
type FSR = sdlspdu.FSR

// PDUResult is the outcome of HandleSDLSPDU.
type PDUResult = sdlspdu.Result

// SAStatusReply is the SA_STATUS response payload.
type SAStatusReply = sdlspdu.StatusReply
