package ocsp

import (
	"xdao.co/digidoc/asn1ber"
	"xdao.co/digidoc/x509cert"
)

var (
	OIDBasicResponse = asn1ber.MustOID("1.3.6.1.5.5.7.48.1.1")
	OIDNonce         = asn1ber.MustOID("1.3.6.1.5.5.7.48.1.2")

	OIDSHA1   = asn1ber.MustOID("1.3.14.3.2.26")
	OIDSHA256 = asn1ber.MustOID("2.16.840.1.101.3.4.2.1")
	OIDSHA384 = asn1ber.MustOID("2.16.840.1.101.3.4.2.2")
	OIDSHA512 = asn1ber.MustOID("2.16.840.1.101.3.4.2.3")
)

// RFC 6960 section 4.2.1 and 4.1.1 structures.
var (
	ResponseStatusSchema = asn1ber.Enumerated("OCSPResponseStatus", map[int64]string{
		0: "successful",
		1: "malformedRequest",
		2: "internalError",
		3: "tryLater",
		5: "sigRequired",
		6: "unauthorized",
	})

	ResponseBytesSchema = asn1ber.Sequence("ResponseBytes",
		asn1ber.F("responseType", asn1ber.ObjectIdentifier()),
		asn1ber.F("response", asn1ber.OctetString()),
	)

	OCSPResponseSchema = asn1ber.Sequence("OCSPResponse",
		asn1ber.F("responseStatus", ResponseStatusSchema),
		asn1ber.F("responseBytes", ResponseBytesSchema.Explicit(0).AsOptional()),
	)

	CertIDSchema = asn1ber.Sequence("CertID",
		asn1ber.F("hashAlgorithm", x509cert.AlgorithmIdentifierSchema),
		asn1ber.F("issuerNameHash", asn1ber.OctetString()),
		asn1ber.F("issuerKeyHash", asn1ber.OctetString()),
		asn1ber.F("serialNumber", asn1ber.Integer()),
	)

	RevokedInfoSchema = asn1ber.Sequence("RevokedInfo",
		asn1ber.F("revocationTime", asn1ber.GeneralizedTime()),
		asn1ber.F("revocationReason", x509cert.CRLReasonSchema.Explicit(0).AsOptional()),
	)

	CertStatusSchema = asn1ber.Choice("CertStatus",
		asn1ber.F("good", asn1ber.Null().Implicit(0)),
		asn1ber.F("revoked", RevokedInfoSchema.Implicit(1)),
		asn1ber.F("unknown", asn1ber.Null().Implicit(2)),
	)

	SingleResponseSchema = asn1ber.Sequence("SingleResponse",
		asn1ber.F("certID", CertIDSchema),
		asn1ber.F("certStatus", CertStatusSchema),
		asn1ber.F("thisUpdate", asn1ber.GeneralizedTime()),
		asn1ber.F("nextUpdate", asn1ber.GeneralizedTime().Explicit(0).AsOptional()),
		asn1ber.F("singleExtensions", x509cert.ExtensionsSchema.Explicit(1).AsOptional()),
	)

	// ResponderIDSchema tags both alternatives explicitly; byName wraps a
	// Name, which is itself a CHOICE in RFC 5280.
	ResponderIDSchema = asn1ber.Choice("ResponderID",
		asn1ber.F("byName", x509cert.NameSchema.Explicit(1)),
		asn1ber.F("byKey", asn1ber.OctetString().Explicit(2)),
	)

	ResponseDataSchema = asn1ber.Sequence("ResponseData",
		asn1ber.F("version", asn1ber.Integer().Explicit(0).WithDefault(asn1ber.NewInt(0))),
		asn1ber.F("responderID", ResponderIDSchema),
		asn1ber.F("producedAt", asn1ber.GeneralizedTime()),
		asn1ber.F("responses", asn1ber.SequenceOf(SingleResponseSchema)),
		asn1ber.F("responseExtensions", x509cert.ExtensionsSchema.Explicit(1).AsOptional()),
	)

	BasicOCSPResponseSchema = asn1ber.Sequence("BasicOCSPResponse",
		asn1ber.F("tbsResponseData", ResponseDataSchema),
		asn1ber.F("signatureAlgorithm", x509cert.AlgorithmIdentifierSchema),
		asn1ber.F("signature", asn1ber.BitString()),
		asn1ber.F("certs", asn1ber.SequenceOf(asn1ber.Any()).Explicit(0).AsOptional()),
	)

	RequestSchema = asn1ber.Sequence("Request",
		asn1ber.F("reqCert", CertIDSchema),
		asn1ber.F("singleRequestExtensions", x509cert.ExtensionsSchema.Explicit(0).AsOptional()),
	)

	TBSRequestSchema = asn1ber.Sequence("TBSRequest",
		asn1ber.F("version", asn1ber.Integer().Explicit(0).WithDefault(asn1ber.NewInt(0))),
		asn1ber.F("requestorName", asn1ber.Any().Explicit(1).AsOptional()),
		asn1ber.F("requestList", asn1ber.SequenceOf(RequestSchema)),
		asn1ber.F("requestExtensions", x509cert.ExtensionsSchema.Explicit(2).AsOptional()),
	)

	OCSPRequestSchema = asn1ber.Sequence("OCSPRequest",
		asn1ber.F("tbsRequest", TBSRequestSchema),
		asn1ber.F("optionalSignature", asn1ber.Any().Explicit(0).AsOptional()),
	)
)
