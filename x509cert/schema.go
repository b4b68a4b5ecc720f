package x509cert

import "xdao.co/digidoc/asn1ber"

// RFC 5280 structures shared with the OCSP package.
var (
	AlgorithmIdentifierSchema = asn1ber.Sequence("AlgorithmIdentifier",
		asn1ber.F("algorithm", asn1ber.ObjectIdentifier()),
		asn1ber.F("parameters", asn1ber.Any().AsOptional()),
	)

	AttributeTypeAndValueSchema = asn1ber.Sequence("AttributeTypeAndValue",
		asn1ber.F("type", asn1ber.ObjectIdentifier()),
		asn1ber.F("value", asn1ber.Any()),
	)

	RelativeDistinguishedNameSchema = asn1ber.SetOf(AttributeTypeAndValueSchema).Named("RelativeDistinguishedName")

	NameSchema = asn1ber.SequenceOf(RelativeDistinguishedNameSchema).Named("Name")

	TimeSchema = asn1ber.Choice("Time",
		asn1ber.F("utcTime", asn1ber.UTCTime()),
		asn1ber.F("generalTime", asn1ber.GeneralizedTime()),
	)

	ValiditySchema = asn1ber.Sequence("Validity",
		asn1ber.F("notBefore", TimeSchema),
		asn1ber.F("notAfter", TimeSchema),
	)

	SubjectPublicKeyInfoSchema = asn1ber.Sequence("SubjectPublicKeyInfo",
		asn1ber.F("algorithm", AlgorithmIdentifierSchema),
		asn1ber.F("subjectPublicKey", asn1ber.BitString()),
	)

	ExtensionSchema = asn1ber.Sequence("Extension",
		asn1ber.F("extnID", asn1ber.ObjectIdentifier()),
		asn1ber.F("critical", asn1ber.Boolean().WithDefault(asn1ber.NewBool(false))),
		asn1ber.F("extnValue", asn1ber.OctetString()),
	)

	ExtensionsSchema = asn1ber.SequenceOf(ExtensionSchema).Named("Extensions")

	TBSCertificateSchema = asn1ber.Sequence("TBSCertificate",
		asn1ber.F("version", asn1ber.Integer().WithNames(map[int64]string{0: "v1", 1: "v2", 2: "v3"}).Explicit(0).WithDefault(asn1ber.NewInt(0))),
		asn1ber.F("serialNumber", asn1ber.Integer()),
		asn1ber.F("signature", AlgorithmIdentifierSchema),
		asn1ber.F("issuer", NameSchema),
		asn1ber.F("validity", ValiditySchema),
		asn1ber.F("subject", NameSchema),
		asn1ber.F("subjectPublicKeyInfo", SubjectPublicKeyInfoSchema),
		asn1ber.F("issuerUniqueID", asn1ber.BitString().Implicit(1).AsOptional()),
		asn1ber.F("subjectUniqueID", asn1ber.BitString().Implicit(2).AsOptional()),
		asn1ber.F("extensions", ExtensionsSchema.Explicit(3).AsOptional()),
	)

	CertificateSchema = asn1ber.Sequence("Certificate",
		asn1ber.F("tbsCertificate", TBSCertificateSchema),
		asn1ber.F("signatureAlgorithm", AlgorithmIdentifierSchema),
		asn1ber.F("signatureValue", asn1ber.BitString()),
	)

	CRLReasonSchema = asn1ber.Enumerated("CRLReason", map[int64]string{
		0:  "unspecified",
		1:  "keyCompromise",
		2:  "cACompromise",
		3:  "affiliationChanged",
		4:  "superseded",
		5:  "cessationOfOperation",
		6:  "certificateHold",
		8:  "removeFromCRL",
		9:  "privilegeWithdrawn",
		10: "aACompromise",
	})
)
